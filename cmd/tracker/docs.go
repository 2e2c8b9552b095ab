package main

//go:generate swag init -g cmd/tracker/main.go -o docs

// @title           WalletPulse Tracker API
// @version         0.1.0
// @description     Smart-wallet swap ingestion, USD valuation, FIFO lot PnL, and consensus signals.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
