// Package jsvm hosts plugin surfaces as sandboxed goja runtimes.
//
// # Surfaces
//
// Each Surface owns one goja.Runtime and one loop goroutine. Load, Send,
// Focus and SendInputEvent only enqueue work, so callers holding their own
// locks never wait on plugin code. A job that runs longer than
// Config.ScriptTimeout is interrupted and the surface is reported as
// unresponsive; an uncaught exception reports it as crashed.
//
// # Plugin API
//
// Scripts see a single host object:
//
//	host.on(channel, fn)        // fn(payload, correlationId)
//	host.send(channel, payload)
//	host.reply(correlationId, result, error)
//	host.feature(code, fn)      // answers call-plugin-method
//	host.mode(valueOrFn)        // answers get-plugin-mode
//
// console, setTimeout and clearTimeout are provided. require, process,
// module and exports are not.
//
// # Entries
//
// An entry URL may be a file:// path or an http(s) URL fetched through the
// plugin's session. HTML entries run their script elements in document
// order; local src scripts must stay inside the entry's directory.
//
// # Host
//
// Host implements lifecycle.WindowHost. Main window layout and standalone
// windows are tracked as state only and exposed through Layout.
package jsvm
