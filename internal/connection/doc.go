// Package connection implements the peripheral link state machine.
//
// A Manager owns the authoritative per-peripheral ConnectionState. Adapter events,
// user requests and adapter-call completions are serialized on one event loop;
// adapter calls run on their own goroutines and post their results back to it.
//
//	Idle/Disconnected/Failed --discovery|connect request|foreground sync--> Connecting
//	Connecting --connect ok--> Connected --services ok--> ServicesResolved --subscribe ok--> Streaming
//	Connecting|Connected|ServicesResolved --error or timeout--> Failed
//	any --adapter disconnect--> Disconnected
//
// Failures are reported through Events, the OnError callback and DrainErrors;
// they never propagate to the code that delivered the triggering event.
package connection
