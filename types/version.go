package types

// ProtocolVersion is the envelope protocol version carried in the `v` field.
// Envelopes with any other version are rejected at decode time.
const ProtocolVersion = "1"

// Version is the canonical project version.
// The CLI and the wire contract share this version per the lockstep
// versioning policy.
const Version = "0.3.0"
