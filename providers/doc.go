// Package providers groups the payment gateway variants. Each subpackage
// implements core.Provider: it opens hosted payment orders and turns signed
// gateway callbacks into callback facts.
package providers
