// Package protocol implements the vault's serial command protocol.
package protocol

// Commands are short ASCII frames terminated by CRLF, sent by an operator
// over a byte stream (usually a serial port). The grammar depends on the
// phase of the session:
//
//	PhaseBind      x\r\n
//	PhaseUnlock    g<d1><d2>\r\n   (digits within the configured range)
//	PhaseUnlocked  q\r\n | u\r\n
//
// Each phase has a fixed frame length, the last byte being the line feed.
// A frame only ends on a line feed. Once a byte is rejected, including a
// byte other than the line feed at the frame length, the rest of the line
// is drained (up to MaxLineLen bytes), so a garbled line costs the
// operator exactly that line. Bytes already consumed are never pushed back.
