// Package device defines the contract between the link manager and a BLE adapter.
//
// It contains:
//   - The Adapter interface and the asynchronous events an adapter emits
//   - Per-peripheral ConnectionState values
//   - The error taxonomy shared by the state machine and the command sequencer
//   - UUID and identifier normalization helpers
//
// Concrete adapters live in sub-packages (see go-ble).
package device
