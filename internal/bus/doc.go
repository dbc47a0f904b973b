// Package bus is the write side of the vehicle I-Bus: the Writer contract
// handlers use, the swappable Binding, and a frame encoder for serial lines.
package bus
