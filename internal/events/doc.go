// Package events provides the task lifecycle notification channel.
//
// The engine publishes a typed Event on every externally visible task
// transition (enqueued, processing, completed, failed, retry, canceled)
// without knowing which subscribers consume them. Subscribers either
// implement EventHandler and register with an InMemoryEventEmitter, or
// consume a buffered channel from a ChannelEmitter.
//
// Emission is always fire-and-forget from the engine's perspective and
// never happens under the engine's store lock, so subscribers may call
// back into the engine safely.
package events
