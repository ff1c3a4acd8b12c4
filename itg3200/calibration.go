package itg3200

import "github.com/mklimuk/gyro"

type Polarity int8

const (
	Normal   Polarity = 1
	Reversed Polarity = -1
)

func polarityOf(reversed bool) Polarity {
	if reversed {
		return Reversed
	}
	return Normal
}

// Axis holds the calibration of a single axis.
type Axis struct {
	Polarity Polarity `yaml:"polarity" json:"polarity"`
	Gain     float64  `yaml:"gain" json:"gain"`
	Offset   float64  `yaml:"offset" json:"offset"`
}

// Apply converts a raw reading to degrees/second. Offset is added last and is
// not affected by polarity or gain.
func (a Axis) Apply(raw int16) float64 {
	return float64(raw)/Sensitivity*float64(a.Polarity)*a.Gain + a.Offset
}

type Calibration struct {
	X Axis `yaml:"x" json:"x"`
	Y Axis `yaml:"y" json:"y"`
	Z Axis `yaml:"z" json:"z"`
}

func DefaultCalibration() Calibration {
	def := Axis{Polarity: Normal, Gain: 1.0}
	return Calibration{X: def, Y: def, Z: def}
}

func (c Calibration) normalized() Calibration {
	c.X.Polarity = polarityOf(c.X.Polarity == Reversed)
	c.Y.Polarity = polarityOf(c.Y.Polarity == Reversed)
	c.Z.Polarity = polarityOf(c.Z.Polarity == Reversed)
	return c
}

// SetRevPolarity reverses the sign of the selected axes.
func (d *ITG3200) SetRevPolarity(x, y, z bool) {
	d.cal.X.Polarity = polarityOf(x)
	d.cal.Y.Polarity = polarityOf(y)
	d.cal.Z.Polarity = polarityOf(z)
}

func (d *ITG3200) SetGains(x, y, z float64) {
	d.cal.X.Gain = x
	d.cal.Y.Gain = y
	d.cal.Z.Gain = z
}

func (d *ITG3200) SetOffsets(x, y, z float64) {
	d.cal.X.Offset = x
	d.cal.Y.Offset = y
	d.cal.Z.Offset = z
}

func (d *ITG3200) Calibration() Calibration {
	return d.cal
}

// SetCalibration replaces all calibration values. Any polarity other than
// Reversed is treated as Normal.
func (d *ITG3200) SetCalibration(c Calibration) {
	d.cal = c.normalized()
}

// X returns the calibrated x axis angular velocity in degrees/second.
func (d *ITG3200) X() float64 {
	return d.cal.X.Apply(d.raw[0])
}

func (d *ITG3200) Y() float64 {
	return d.cal.Y.Apply(d.raw[1])
}

func (d *ITG3200) Z() float64 {
	return d.cal.Z.Apply(d.raw[2])
}

// Calibrator derives offsets that zero the mean output of a sensor at rest.
// It listens for updates until it has collected the requested number of
// samples, then applies the new offsets and reports the resulting calibration.
type Calibrator struct {
	device  *ITG3200
	samples int
	count   int
	sum     [3]float64
	done    func(Calibration)
}

func NewCalibrator(d *ITG3200, samples int, done func(Calibration)) *Calibrator {
	if samples < 1 {
		samples = 1
	}
	c := &Calibrator{device: d, samples: samples, done: done}
	d.Subscribe(gyro.SignalUpdate, c.sample)
	return c
}

func (c *Calibrator) Done() bool {
	return c.count >= c.samples
}

func (c *Calibrator) sample() {
	if c.Done() {
		return
	}
	cal := c.device.cal
	// mean of the output without offsets
	c.sum[0] += cal.X.Apply(c.device.raw[0]) - cal.X.Offset
	c.sum[1] += cal.Y.Apply(c.device.raw[1]) - cal.Y.Offset
	c.sum[2] += cal.Z.Apply(c.device.raw[2]) - cal.Z.Offset
	c.count++
	if !c.Done() {
		return
	}
	n := float64(c.count)
	c.device.SetOffsets(-c.sum[0]/n, -c.sum[1]/n, -c.sum[2]/n)
	if c.done != nil {
		c.done(c.device.cal)
	}
}
