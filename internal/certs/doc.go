// Package certs assembles the trust material compiled into firmware.
//
// Caller-supplied certificates are written verbatim into the checkout's
// certificate directory. The CA chain (intermediate first, root second) is
// downloaded with bounded retries and written last, so it replaces any
// caller file of the same name.
package certs
