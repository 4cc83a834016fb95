// Command sensactd runs the sensor/actuator board's firmware core: the
// differential-drive PID loop and onboard accelerometer, dispatched
// against the host over the framed packet control interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"tribot.dev/board"
	"tribot.dev/driver/accel"
	"tribot.dev/driver/adc"
	"tribot.dev/driver/i2cdev"
	"tribot.dev/driver/serialport"
	"tribot.dev/drive"
)

var (
	serialDev   = flag.String("serial", "", "host link serial device (platform default if empty)")
	i2cBus      = flag.String("i2c-bus", "", "periph.io i2c bus name (first available if empty)")
	accelAddr   = flag.Uint("accel-addr", 0x1D, "accelerometer i2c address")
	adcAddr     = flag.Uint("adc-addr", 0x48, "battery/telemetry adc i2c address")
	smbusAddr   = flag.Uint("smbus-passthrough", 0, "enable SMBus passthrough on this bus (0 disables)")
	motorEnable = flag.String("motor-enable-pin", "GPIO23", "motor driver enable gpio")
	encRightA   = flag.String("encoder-right-a-pin", "GPIO5", "")
	encRightB   = flag.String("encoder-right-b-pin", "GPIO6", "")
	encLeftA    = flag.String("encoder-left-a-pin", "GPIO13", "")
	encLeftB    = flag.String("encoder-left-b-pin", "GPIO19", "")
	leftIn1     = flag.String("left-bridge-in1-pin", "GPIO17", "left H-bridge IN1")
	leftIn2     = flag.String("left-bridge-in2-pin", "GPIO27", "left H-bridge IN2")
	rightIn1    = flag.String("right-bridge-in1-pin", "GPIO22", "right H-bridge IN1")
	rightIn2    = flag.String("right-bridge-in2-pin", "GPIO24", "right H-bridge IN2")
)

// battMVPerCount calibrates this board's local battery voltage-divider
// ADC channel, independent of the power board's own BattMVPerADCCount
// (a different divider ratio feeds each board's local telemetry channel).
const battMVPerCount = 22

type localBattery struct{ ch *adc.Channel }

func (b localBattery) MilliVolts() uint16 { return b.ch.Sample() * battMVPerCount }

// encoderPort packs the four quadrature lines into drive.Encoder's
// single-byte port layout by reading all four gpio levels on any one
// edge, standing in for the original firmware's single-port-register
// read inside the shared pin-change ISR.
type encoderPort struct {
	rightA, rightB, leftA, leftB gpio.PinIn
}

func (p *encoderPort) Read() uint8 {
	var v uint8
	if p.rightA.Read() {
		v |= drive.ChRightA
	}
	if p.rightB.Read() {
		v |= drive.ChRightB
	}
	if p.leftA.Read() {
		v |= drive.ChLeftA
	}
	if p.leftB.Read() {
		v |= drive.ChLeftB
	}
	return v
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	flag.Parse()

	log.Println("sensactd: starting")
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	port, err := serialport.Open(*serialDev)
	if err != nil {
		return fmt.Errorf("open serial link: %w", err)
	}
	defer port.Close()
	link := serialport.NewStream(port)

	bus, err := i2creg.Open(*i2cBus)
	if err != nil {
		return fmt.Errorf("open i2c bus: %w", err)
	}
	defer bus.Close()
	smbus := i2cdev.New(bus)

	accelDev := accel.New(smbus, uint8(*accelAddr))
	adcDev := adc.New(smbus, uint8(*adcAddr))
	batt := localBattery{ch: adcDev.On(0)}

	enablePin := gpioreg.ByName(*motorEnable)
	if enablePin == nil {
		return fmt.Errorf("gpio %q not found", *motorEnable)
	}
	enablePin.Out(gpio.Low)

	encoder := drive.NewEncoder()
	leftBridge := &gpioBridge{in1: mustOutPin(*leftIn1), in2: mustOutPin(*leftIn2)}
	rightBridge := &gpioBridge{in1: mustOutPin(*rightIn1), in2: mustOutPin(*rightIn2)}
	sys := drive.New(encoder, leftBridge, rightBridge, func(on bool) {
		if on {
			enablePin.Out(gpio.High)
		} else {
			enablePin.Out(gpio.Low)
		}
	}, accelDev)

	port4 := &encoderPort{
		rightA: mustPin(*encRightA),
		rightB: mustPin(*encRightB),
		leftA:  mustPin(*encLeftA),
		leftB:  mustPin(*encLeftB),
	}
	for _, p := range []gpio.PinIn{port4.rightA, port4.rightB, port4.leftA, port4.leftB} {
		p.In(gpio.PullNoChange, gpio.Both)
		go watchEncoderEdge(p, port4, sys)
	}

	var passthrough board.SMBusDevice
	if *smbusAddr != 0 {
		passthrough = smbus
	}

	b := board.NewSensAct(link, link, sys, batt, passthrough)

	log.Println("sensactd: ready")
	return b.Run(context.Background())
}

func mustPin(name string) gpio.PinIn {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("sensactd: gpio %q not found", name)
	}
	return p
}

func mustOutPin(name string) gpio.PinOut {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("sensactd: gpio %q not found", name)
	}
	return p
}

func watchEncoderEdge(p gpio.PinIn, port *encoderPort, sys *drive.System) {
	for p.WaitForEdge(-1) {
		sys.HandleEncoderEdge(port.Read())
	}
}

// gpioBridge drives a two-input H-bridge (TB6612/DRV8833-style IN1/IN2
// control) directly off two gpio.PinOut lines: one line carries the PWM
// duty cycle, the other is held low, with both modes' roles swapped for
// the reverse direction and both driven together for coast/brake. This
// is the generic two-pin truth table every such bridge shares regardless
// of decay mode; driveBridge has already applied the fast/slow decay duty
// inversion before Configure ever sees it.
type gpioBridge struct {
	in1, in2 gpio.PinOut
}

func (b *gpioBridge) Configure(mode drive.BridgeMode, dutyCycle uint8) {
	duty := int(dutyCycle) * gpio.Max / 255
	switch mode {
	case drive.ForwardPWMFastDecay, drive.ForwardPWMSlowDecay:
		b.in1.PWM(duty)
		b.in2.Out(gpio.Low)
	case drive.ReversePWMFastDecay, drive.ReversePWMSlowDecay:
		b.in1.Out(gpio.Low)
		b.in2.PWM(duty)
	case drive.Forward:
		b.in1.Out(gpio.High)
		b.in2.Out(gpio.Low)
	case drive.Reverse:
		b.in1.Out(gpio.Low)
		b.in2.Out(gpio.High)
	case drive.Brake:
		b.in1.Out(gpio.High)
		b.in2.Out(gpio.High)
	case drive.Coast:
		b.in1.Out(gpio.Low)
		b.in2.Out(gpio.Low)
	}
}
