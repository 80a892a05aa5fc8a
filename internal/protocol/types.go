package protocol

// DefaultPort is the service port used when an address carries none.
const DefaultPort uint16 = 2608
