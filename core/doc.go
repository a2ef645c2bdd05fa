// Package core contains the payment lifecycle domain: stage transition rules,
// amount, settlement and refund calculators, the transaction coordinator and
// the transition executor that is the single writer of payment state. Storage
// and transport adapters depend on this package; core does not depend on them.
package core
