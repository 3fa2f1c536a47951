// Package socket provides the WebSocket server for GpioManager.
//
// Every client message is a JSON envelope {type, body}. The body travels
// either as a plain JSON object or, when payload encryption is enabled, as a
// base64 string: RSA for the login handshake, AES-256-CBC for everything
// after a session key is established. Each request passes through a fixed
// pipeline before its handler runs: decrypt, parse, token presence, required
// fields, token verification. Exactly one response is emitted per request,
// typed "<request>Res".
//
// The Hub fans change notifications out to clients that joined the
// components room; delivery is best effort with no queuing for disconnected
// or slow clients.
package socket
