// Package core contains the payment intent domain: the ledger contracts, the
// intent lifecycle service, callback validation, the reconciliation sweeper
// and the notification dispatcher boundary. Storage, gateway and transport
// adapters depend on this package; core must not depend on any of them.
package core
