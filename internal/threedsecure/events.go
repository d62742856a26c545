package threedsecure

import (
	"context"
	"fmt"
)

// Analytics event names
const (
	eventValidationFailed       = "three-d-secure.validation.failed"
	eventInvalidManifest        = "three-d-secure.invalid-manifest"
	eventInitialized            = "three-d-secure.initialized"
	eventSetupCompleted         = "three-d-secure.cardinal-sdk.init.setup-completed"
	eventSetupFailed            = "three-d-secure.cardinal-sdk.init.setup-failed"
	eventLookupSucceeded        = "three-d-secure.lookup.succeeded"
	eventLookupFailed           = "three-d-secure.lookup.failed"
	eventChallengePresented     = "three-d-secure.verification-flow.challenge-presented.%t"
	eventProtocolVersion        = "three-d-secure.verification-flow.3ds-version.%s"
	eventLiabilityShifted       = "three-d-secure.verification-flow.liability-shifted.%t"
	eventLiabilityShiftPossible = "three-d-secure.verification-flow.liability-shift-possible.%t"
	eventCanceled               = "three-d-secure.verification-flow.canceled"
	eventFailed                 = "three-d-secure.verification-flow.failed"
	eventUpgradeSucceeded       = "three-d-secure.verification-flow.upgrade-payment-method.succeeded"
	eventUpgradeErrored         = "three-d-secure.verification-flow.upgrade-payment-method.errored"
	eventUpgradeReturnedLookup  = "three-d-secure.verification-flow.upgrade-payment-method.failure.returned-lookup-nonce"
	eventRedirectDeparted       = "three-d-secure.redirect.departed"
)

type noopAnalytics struct{}

func (noopAnalytics) Send(context.Context, string) {}

func (o *Orchestrator) send(ctx context.Context, event string) {
	o.analytics.Send(ctx, event)
}

func (o *Orchestrator) sendLiability(ctx context.Context, info ThreeDSecureInfo) {
	o.send(ctx, fmt.Sprintf(eventLiabilityShifted, info.LiabilityShifted))
	o.send(ctx, fmt.Sprintf(eventLiabilityShiftPossible, info.LiabilityShiftPossible))
}
