// Package models provides the model-catalog resolver that turns symbolic
// auto-tags (auto:fast, auto:smart, auto:vision) into concrete
// provider/model ids.
package models
