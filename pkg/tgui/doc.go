// Package tgui has small helpers for building Telegram HTML replies.
// Everything that returns H is escaped and safe to send with ParseMode "HTML".
package tgui
