// Package alert provides the business boundary for Callout's alert
// orchestration engine. It defines the Orchestrator (threshold rule, cooldown
// gate, async call dispatch), the Store and CooldownStore interfaces
// (persistence), and the domain models.
package alert
