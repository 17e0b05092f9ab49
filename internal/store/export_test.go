package store

// SetBeginHook installs a function run before each BEGIN attempt.
func (c *Client) SetBeginHook(fn func(attempt int) error) {
	c.beginHook = fn
}
