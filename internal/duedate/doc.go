// Package duedate formats to-do due dates as short relative labels such as
// "今天", "明天" or "3天后".
package duedate
