package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/cmd/gyro/console"
	"github.com/mklimuk/gyro/itg3200"
)

var registerFlag = &cli.UintFlag{
	Name:    "register",
	Aliases: []string{"r"},
	Value:   uint(itg3200.RegWhoAmI),
	Usage:   "register address",
}

var registerCmd = cli.Command{
	Name:    "register",
	Aliases: []string{"reg"},
	Usage:   "raw register access (plain I2C adapters only)",
	Subcommands: cli.Commands{
		&registerReadCmd,
		&registerWriteCmd,
		&registerBitCmd,
	},
}

var registerReadCmd = cli.Command{
	Name: "read",
	Flags: []cli.Flag{
		registerFlag,
		&cli.IntFlag{
			Name:    "length",
			Aliases: []string{"n"},
			Value:   1,
		},
	},
	Action: func(c *cli.Context) error {
		return withBus(c, func(ctx context.Context, bus gyro.I2CBus, address byte) error {
			buf := make([]byte, c.Int("length"))
			err := readRegister(ctx, bus, address, byte(c.Uint("register")), buf)
			if err != nil {
				return err
			}
			for i, b := range buf {
				console.Printf("%s %s\n", console.Cyan(fmt.Sprintf("%#02x", c.Uint("register")+uint(i))), console.White(fmt.Sprintf("%#02x", b)))
			}
			return nil
		})
	},
}

var registerWriteCmd = cli.Command{
	Name: "write",
	Flags: []cli.Flag{
		registerFlag,
		&cli.UintFlag{
			Name:     "value",
			Aliases:  []string{"v"},
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		return withBus(c, func(ctx context.Context, bus gyro.I2CBus, address byte) error {
			return bus.WriteToAddr(ctx, address, []byte{byte(c.Uint("register")), byte(c.Uint("value"))})
		})
	},
}

var registerBitCmd = cli.Command{
	Name:  "bit",
	Usage: "set or clear a single register bit",
	Flags: []cli.Flag{
		registerFlag,
		&cli.UintFlag{
			Name:     "bit",
			Aliases:  []string{"b"},
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "clear",
			Usage: "clear the bit instead of setting it",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Uint("bit") > 7 {
			return console.Exit(1, "bit must be in range 0-7")
		}
		return withBus(c, func(ctx context.Context, bus gyro.I2CBus, address byte) error {
			reg := byte(c.Uint("register"))
			value, err := updateBit(ctx, bus, address, reg, byte(c.Uint("bit")), !c.Bool("clear"))
			if err != nil {
				return err
			}
			console.Printf("%s %s\n", console.Cyan(fmt.Sprintf("%#02x", reg)), console.White(fmt.Sprintf("%#08b", value)))
			return nil
		})
	},
}

func withBus(c *cli.Context, f func(ctx context.Context, bus gyro.I2CBus, address byte) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return console.Exit(1, "configuration error: %s", console.Red(err))
	}
	address, err := cfg.DeviceAddress()
	if err != nil {
		return console.Exit(1, "configuration error: %s", console.Red(err))
	}
	ctx := commandContext(c)
	bus, closer, err := openBus(ctx, cfg)
	if err != nil {
		return console.Exit(1, "bus error: %s", console.Red(err))
	}
	defer func() { _ = closer.Close() }()
	err = f(ctx, bus, byte(address))
	if err != nil {
		return console.Exit(1, "register access error: %s", console.Red(err))
	}
	return nil
}

// readRegister sets the register pointer and reads len(buf) bytes from it.
func readRegister(ctx context.Context, bus gyro.I2CBus, address, reg byte, buf []byte) error {
	err := bus.WriteToAddr(ctx, address, []byte{reg})
	if err != nil {
		return fmt.Errorf("could not select register %#02x: %w", reg, err)
	}
	err = bus.ReadFromAddr(ctx, address, buf)
	if err != nil {
		return fmt.Errorf("could not read register %#02x: %w", reg, err)
	}
	return nil
}

// updateBit reads a register, sets or clears one bit and writes it back.
func updateBit(ctx context.Context, bus gyro.I2CBus, address, reg, bit byte, set bool) (byte, error) {
	buf := make([]byte, 1)
	err := readRegister(ctx, bus, address, reg, buf)
	if err != nil {
		return 0, err
	}
	value := buf[0]
	if set {
		value |= 1 << bit
	} else {
		value &^= 1 << bit
	}
	err = bus.WriteToAddr(ctx, address, []byte{reg, value})
	if err != nil {
		return 0, fmt.Errorf("could not write register %#02x: %w", reg, err)
	}
	return value, nil
}
