// Package command handles backend-issued remote commands: it normalizes the
// heterogeneous inbound documents into model.RemoteCommand, polls the backend
// for pending commands and reports execution results back.
package command
