// Package relay implements the status forwarding pipeline.
//
// Each inbound message on status/AMT<id> flows through three parts:
//
//	Listener ─► Transformer ─► Forwarder
//
// The Listener derives the device id from the topic and drops messages
// from topics it does not recognise. The Transformer turns the payload
// into an Envelope or reports a skip for empty content. The Forwarder
// serialises the envelope and publishes it to the single outbound topic.
//
// # Envelope
//
// A flat JSON object payload becomes an ordered array of name/value
// pairs; any other JSON is carried unchanged; non-JSON is carried as
// trimmed text:
//
//	status/AMT12345678901234  {"AI1":0.07997,"DI1":1}
//	  ─► {"data":[{"name":"AI1","value":0.07997},{"name":"DI1","value":1}],
//	      "SN":"AMT12345678901234","Type":"park","flexem_timestamp":1700000000000}
//
// Number literals are preserved exactly. Timestamps come from a Clock that
// never goes backwards within one process.
//
// # Ownership
//
// The Listener owns the inbound Subscriber and the Forwarder owns the
// outbound Publisher. Neither holds per-message state, so handling
// needs no locking beyond the atomic Stats counters.
package relay
