// Package harness runs scripted module lifecycle scenarios against a real
// manager, dispatcher and database, and checks the resulting trace.
//
// # Scenario Format
//
//	name: reload_recovers
//	description: "A failed module loads after its manifest is fixed"
//	manifests:
//	  ping.cue: |
//	    module: entry: "ping"
//	steps:
//	  - op: load_all
//	  - op: event
//	    event: ping
//	    channel: c1
//	    expect: { reply: pong }
//	  - op: write
//	    path: ping.cue
//	    content: |
//	      module: entry: "nope"
//	  - op: reload
//	    module: ping
//	    expect: { ok: false, code: MISSING_ENTRY_POINT, state: failed }
//	assertions:
//	  - type: trace_order
//	    events: ["ping: loaded -> unloading", "ping: loading -> failed"]
//	  - type: final_state
//	    module: ping
//	    state: failed
//
// Steps are load_all, load, unload, reload, forget, write, remove, sync
// and event. write and remove change files without telling the manager;
// sync hands a path over the way the file watcher does.
//
// # Trace
//
// The trace interleaves three kinds of event in the order they happened:
// the lifecycle transitions the manager reports, one entry per step, and
// the replies handlers sent. An event step waits for one reply per
// registered handler and sorts them, so a run is deterministic. Assertions
// match events by key (see TraceEvent.Key).
//
// # Golden Files
//
// RunWithGolden compares the trace, as canonical JSON lines, with
// testdata/golden/<name>.golden.
package harness
