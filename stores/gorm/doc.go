//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based AccountStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and is suitable for production deployments requiring relational database storage.
//
// # Database Schema
//
// AutoMigrate creates a single accounts table. Verification tokens live in a
// nullable indexed column; row locking keeps updates to one account serialized
// on databases that support SELECT ... FOR UPDATE.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.NewAccountStore(db)
package gorm
