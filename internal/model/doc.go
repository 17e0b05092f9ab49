// Package model declares the record types persisted by the bundled
// modules, their schema migrations and their type-specific controllers.
//
// Every type-specific controller embeds controller.Controller and only adds
// guild-scoped convenience methods; all generic logic lives there.
package model
