// Package recorder archives messages received on emitter channels.
//
// A Recorder subscribes to the configured channels, registers a message
// handler on the emitter client and stores every channel message through a
// Store. Control traffic on emitter/* topics is not archived; broker errors
// are logged. When a Metrics sink is set (InfluxDB in emitterctl), each
// message is also counted there.
//
// SQLiteStore keeps the archive in the messages table created by the
// embedded migrations.
package recorder
