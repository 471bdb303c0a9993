// Package jobs defines the records, errors and collaborator interfaces shared
// by every stage of the scrape pipeline.
//
// Data flows one way through a run: a Fetcher returns RawRecords, the parser
// projects them onto Records, the keyword filter narrows them, the master
// store merges them into the cumulative CSV and the output writer persists a
// dated snapshot. Stages never share mutable state; each returns a fresh slice.
package jobs
