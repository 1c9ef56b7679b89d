// Package store is the launcher's persistent key/value document store.
//
// Values are JSON documents. The SQLite implementation keeps them in one kv
// table; Memory backs tests and the "memory" driver. The lifecycle core reads
// three documents: the registered-plugins list, the kill-on-exit name list,
// and the last standalone window size per plugin name.
package store
