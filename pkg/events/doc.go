/*
Package events provides the in-memory event bus the controller subscribes
to for instance lifecycle and health notifications.

	Publisher → event channel (buffered) → broadcast loop → subscriber channels

Publish never blocks the caller beyond the broker's own buffer; a full
subscriber buffer drops the event for that subscriber rather than stalling
the broadcast loop, so one slow controller cannot back-pressure another.
Delivery order within a single subscriber matches publish order.
*/
package events
