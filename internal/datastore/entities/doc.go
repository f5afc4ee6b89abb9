// Package entities defines the persisted data model: experiments owning
// ordered typed tests, result submissions grouping the results of one
// ingestion call, and independently rated audio samples.
//
// Deletion order is enforced explicitly in the datastore layer (children
// before parents, one transaction); the cascade constraints declared here
// are a second line of defense, not the mechanism.
package entities
