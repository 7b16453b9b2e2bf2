// Package provider holds the shared model of the gateway and the contract
// bank integrations implement.
//
// # Adapters
//
// Every bank integration is an Adapter built per transaction from a Session.
// The session carries the transaction, its terminal, the decrypted
// credentials and card, the callback URL and an HTTP client. An adapter is
// never reused across transactions.
//
// Optional operations are separate interfaces, checked at run time against
// the adapter's declared Capabilities:
//
//   - DirectPayer: charge without cardholder authentication
//   - PreAuthorizer / PostAuthorizer: reserve, then capture
//   - Refunder / Canceller: reverse a settled charge
//   - StatusQuerier: ask the bank for the state of an order
//
// # Registration
//
// Adapters register a Factory with the DefaultRegistry from init, under
// their id and any bank code aliases:
//
//	func init() {
//	    provider.Register(ID, New, "isbank", "halkbank", "teb")
//	}
//
// Importing an adapter package for side effects makes it resolvable:
//
//	import _ "github.com/mstgnz/vpos/provider/nestpay"
//
// # Errors
//
// Failures carry a Kind (VALIDATION, BANK_REJECTED, THREE_D_FAILED, ...) and
// a stable code. KindOf, CodeOf and MessageOf read them from any wrapped
// error chain; an error without a Kind is INTERNAL.
//
// # Helpers
//
// Signature helpers (SHA-1/SHA-512 base64, HMAC), amount formatting, order
// id generation, XML decoding with Turkish charsets and the auto-submit form
// page are shared here so adapters stay small.
package provider
