// Package social provides send_message and read_messages over the
// identity's mailbox. Reading marks messages delivered; they are not shown
// again.
package social
