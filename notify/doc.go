// Package notify holds the resolution event notifiers: a Telegram chat
// message for operators and Kafka and SNS publishers for downstream
// consumers. All of them implement core.Notifier and are fanned out by
// core.NotificationDispatcher.
package notify
