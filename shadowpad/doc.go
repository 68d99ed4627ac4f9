/*
Package shadowpad implements packet protection keyed by a shared random pad file.

Both endpoints hold an identical pad: a large file of random bytes provisioned
out of band. Nothing secret is ever negotiated. Each packet carries a fresh
8-byte random nonce in the clear, and both sides use it to walk the pad with
chained SHA3-256 hashes: first to extract an 8-byte secret seed, then to
extract one key byte per byte of payload. Every hash is truncated to its first
8 bytes, read as an unsigned big-endian integer and reduced modulo the pad
length to pick the next pad byte.

Each packet has the following structure:

    [encrypted payload]
    [encrypted signature]
    [nonce]

The signature is the first 8 bytes of SHA3-256(seed || payload || key) and is
encrypted together with the payload. A packet only verifies if it was sealed
with the same pad, so a signature mismatch means either tampering or a
different pad on the other side.

Nonces must not repeat for two different payloads under the same pad; they are
drawn from crypto/rand at full width for every packet.
*/
package shadowpad
