package parser

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"RoboFlock/internal/model"
)

// Radio board wire format (one message per line):
//
//	PING,<hex payload>,<d0>,<d1>,<d2>,<strength>   received ranging ping
//	LOC,<index>#<x>#<z>#<theta>                    localizer record
//	W,<cohesion>,<separation>,<threshold>,<iter>   plain coordinator push
//	LW,<hex LoRaWAN frame>                         framed coordinator push
//
// Outbound the robot writes PING,<hex payload>.
//
// Base board wire format:
//
//	S,<d0>,...,<dN>         distance sensor readings
//	E,<left>,<right>        cumulative wheel angles [rad]
//	A,<ax>,<ay>,<az>        accelerometer sample [m/s^2]
//
// Outbound the robot writes M,<left>,<right> wheel velocities [rad/s].

// RadioKind tags a decoded radio line.
type RadioKind int

const (
	RadioPing RadioKind = iota + 1
	RadioLocalization
	RadioWeights
	RadioLoRaWAN
)

// RadioMessage is one decoded radio line.
type RadioMessage struct {
	Kind    RadioKind
	Ping    model.PingFrame
	Pose    model.PoseReport
	Weights model.WeightPayload
	Frame   string
}

// ErrUnknownLine is returned for lines with an unrecognised tag.
var ErrUnknownLine = errors.New("unknown line tag")

// ParseRadioLine decodes one line received from the radio board.
func ParseRadioLine(line string) (RadioMessage, error) {
	line = strings.TrimSpace(line)
	tag, rest, _ := strings.Cut(line, ",")
	switch tag {
	case "PING":
		fields := strings.Split(rest, ",")
		if len(fields) != 5 {
			return RadioMessage{}, fmt.Errorf("ping: expected 5 fields, got %d", len(fields))
		}
		payload, err := hex.DecodeString(fields[0])
		if err != nil {
			return RadioMessage{}, errors.New("ping: invalid payload hex")
		}
		vals, err := parseFloats(fields[1:])
		if err != nil {
			return RadioMessage{}, fmt.Errorf("ping: %w", err)
		}
		return RadioMessage{Kind: RadioPing, Ping: model.PingFrame{
			Payload:   payload,
			Direction: [3]float64{vals[0], vals[1], vals[2]},
			Strength:  vals[3],
		}}, nil
	case "LOC":
		pose, err := ParseLocalization(rest)
		if err != nil {
			return RadioMessage{}, fmt.Errorf("loc: %w", err)
		}
		return RadioMessage{Kind: RadioLocalization, Pose: pose}, nil
	case "W":
		w, err := NewCSVParser().DecodeWeights(line)
		if err != nil {
			return RadioMessage{}, err
		}
		return RadioMessage{Kind: RadioWeights, Weights: w.Payload()}, nil
	case "LW":
		if rest == "" {
			return RadioMessage{}, errors.New("lw: empty frame")
		}
		return RadioMessage{Kind: RadioLoRaWAN, Frame: rest}, nil
	default:
		return RadioMessage{}, fmt.Errorf("%w %q", ErrUnknownLine, tag)
	}
}

// FormatPingLine builds the outbound ping line for payload.
func FormatPingLine(payload []byte) string {
	return "PING," + hex.EncodeToString(payload)
}

// FormatReceivedPing builds the inbound ping line a radio board emits.
func FormatReceivedPing(f model.PingFrame) string {
	return fmt.Sprintf("PING,%s,%g,%g,%g,%g", hex.EncodeToString(f.Payload),
		f.Direction[0], f.Direction[1], f.Direction[2], f.Strength)
}

// BaseKind tags a decoded base board line.
type BaseKind int

const (
	BaseSensors BaseKind = iota + 1
	BaseEncoders
	BaseAccel
)

// BaseMessage is one decoded base board line.
type BaseMessage struct {
	Kind        BaseKind
	Sensors     []int
	Left, Right float64
	Accel       [3]float64
}

// ParseBaseLine decodes one line received from the base board.
func ParseBaseLine(line string) (BaseMessage, error) {
	line = strings.TrimSpace(line)
	tag, rest, _ := strings.Cut(line, ",")
	fields := strings.Split(rest, ",")
	switch tag {
	case "S":
		readings := make([]int, len(fields))
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return BaseMessage{}, fmt.Errorf("invalid sensor %d", i)
			}
			readings[i] = v
		}
		return BaseMessage{Kind: BaseSensors, Sensors: readings}, nil
	case "E":
		if len(fields) != 2 {
			return BaseMessage{}, fmt.Errorf("encoders: expected 2 fields, got %d", len(fields))
		}
		vals, err := parseFloats(fields)
		if err != nil {
			return BaseMessage{}, fmt.Errorf("encoders: %w", err)
		}
		return BaseMessage{Kind: BaseEncoders, Left: vals[0], Right: vals[1]}, nil
	case "A":
		if len(fields) != 3 {
			return BaseMessage{}, fmt.Errorf("accel: expected 3 fields, got %d", len(fields))
		}
		vals, err := parseFloats(fields)
		if err != nil {
			return BaseMessage{}, fmt.Errorf("accel: %w", err)
		}
		return BaseMessage{Kind: BaseAccel, Accel: [3]float64{vals[0], vals[1], vals[2]}}, nil
	default:
		return BaseMessage{}, fmt.Errorf("%w %q", ErrUnknownLine, tag)
	}
}

// FormatMotorLine builds the wheel velocity command line.
func FormatMotorLine(left, right float64) string {
	return fmt.Sprintf("M,%.4f,%.4f", left, right)
}

func parseFloats(fields []string) ([]float64, error) {
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid value %q", f)
		}
		vals[i] = v
	}
	return vals, nil
}
