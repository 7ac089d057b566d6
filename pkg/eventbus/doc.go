// Package eventbus provides typed, synchronous publish/subscribe for a
// single dispatch goroutine.
//
// # Overview
//
// Two buses share one Context:
//
//   - Registry[T]: one dense subscriber array per event type. Register and
//     Unregister are O(1) (swap-remove), Raise walks the array and then
//     drains the one-shot callbacks queued with Once.
//   - Bus: a composable bus with priority ordering. A Bus is itself a
//     subscriber, so buses nest and forward events downwards.
//
// # Registries
//
// RegistryFor returns the registry of an event type, creating it on first
// use:
//
//	ctx := eventbus.New()
//	b := eventbus.On(ctx, func(e Scored) { total += e.Points })
//	eventbus.Raise(ctx, Scored{Points: 10})
//	eventbus.Unregister(ctx, b)
//
// Hot paths can keep the registry:
//
//	scores := eventbus.RegistryFor[Scored](ctx)
//	scores.Raise(Scored{Points: 10})
//
// # Composable Buses
//
// Listeners implement Listener[T]. NewHandler wraps a function:
//
//	hud := ctx.NewBus(eventbus.WithBusName("hud"), eventbus.WithTargets(eventbus.TargetGlobal))
//	hud.Subscribe(eventbus.NewHandler(func(e Damage) { ... }, eventbus.WithPriority(-10)))
//	hud.Connect()
//
//	eventbus.Send(ctx.Global(), Damage{Amount: 3}) // reaches the hud listener
//
// Lower priorities run first. Equal priorities run in subscription order.
// Child buses are ordered together with the local listeners by their own
// priority.
//
// # Awaiters
//
// An Awaiter resolves with the next event of its type:
//
//	a := eventbus.NewAwaiter[LevelLoaded](ctx)
//	a.Arm()
//	evt, err := a.Wait(reqCtx)
//
// # Faults
//
// A panicking subscriber is recovered, logged and journaled. Under
// FaultRecover dispatch continues with the next subscriber. Under
// FaultPropagate the panic is re-raised as a *SubscriberFault.
//
// # Concurrency
//
// Nothing in this package locks on the dispatch path. A Context and every
// registry and bus created from it belong to one goroutine. Awaiter.Wait is
// the exception and may block on any goroutine.
package eventbus
