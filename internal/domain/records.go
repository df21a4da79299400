package domain

import (
	"cloud.google.com/go/civil"
)

// Direction indicates which side of the bank statement a line sits on.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// RawBankLine is one statement row as delivered by the ingestion edge
// (CSV gateway, GCS batch, queue message). All fields are unparsed text.
type RawBankLine struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
}

// RawLedgerEntry is one posted accounting record as returned by the
// ledger collaborator, before normalization.
type RawLedgerEntry struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// BankLine is a normalized statement row. Amount is in signed minor units
// (credit positive, debit negative); Date is truncated to the calendar day
// in the client's timezone. Immutable once produced by the Normalizer.
type BankLine struct {
	ID          string     `json:"id"`
	Date        civil.Date `json:"date"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
	Direction   Direction  `json:"direction"`
}

// LedgerEntry is a normalized posted accounting record. The engine only
// reads ledger entries, except for the ones it creates as adjustments.
type LedgerEntry struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	Date        civil.Date `json:"date"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
}
