// Package domain contains the core business entities of the ingestion
// pipeline: orders, their line items, and upload sessions, together with
// the sentinel errors the rest of the system classifies failures by. It is
// independent of any specific infrastructure or delivery mechanism.
package domain
