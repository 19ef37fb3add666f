package model

import "fmt"

type CalculationMessage struct {
	ID      int    `json:"id"`
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
)

func Critical(code, format string, args ...any) CalculationMessage {
	return CalculationMessage{Level: LevelCritical, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Warning(code, format string, args ...any) CalculationMessage {
	return CalculationMessage{Level: LevelWarning, Code: code, Message: fmt.Sprintf(format, args...)}
}

// HasCritical reports whether any message halts the pipeline.
func HasCritical(msgs []CalculationMessage) bool {
	for _, m := range msgs {
		if m.Level == LevelCritical {
			return true
		}
	}
	return false
}
