// Package actors holds the native actors fuzzable through the actor VM.
package actors

import "github.com/Kindhearted57/sui-fuzzer/runner/actorvm"

func init() {
	actorvm.RegisterActor("vault", func() actorvm.Invokee { return NewVault() })
	actorvm.RegisterActor("counter", func() actorvm.Invokee { return &Counter{} })
}
