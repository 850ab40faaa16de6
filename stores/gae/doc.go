//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore AccountStore.
// It is designed for deployment on Google Cloud Platform and supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
// Accounts are stored under the Account kind, keyed by identity key. Creates
// and updates run in transactions, which is what makes identity keys unique
// and verification tokens single use.
//
// # Namespacing
//
// Pass a namespace when creating the store to isolate data between tenants:
//
//	store := gae.NewAccountStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewAccountStore(client, "")  // default namespace
package gae
