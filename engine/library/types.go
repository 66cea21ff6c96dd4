package library

// Account is an x-only public key in hex.
type Account = string

// Sha256 is a 32-byte hash in hex, used for event ids.
type Sha256 = string
