package config

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseSensorSpecs(t *testing.T) {
	Convey("A single five-field spec parses", t, func() {
		specs, err := ParseSensorSpecs("front:GPIO23:GPIO24:0.05:4.0")

		So(err, ShouldBeNil)
		So(specs, ShouldHaveLength, 1)
		So(specs[0].Name, ShouldEqual, "front")
		So(specs[0].TriggerLine, ShouldEqual, "GPIO23")
		So(specs[0].EchoLine, ShouldEqual, "GPIO24")
		So(specs[0].MinRange, ShouldEqual, 0.05)
		So(specs[0].MaxRange, ShouldEqual, 4.0)
		So(specs[0].FieldOfView, ShouldBeNil)
	})

	Convey("Multiple specs with an optional field of view parse", t, func() {
		specs, err := ParseSensorSpecs(
			"front:GPIO23:GPIO24:0.05:4.0:15, rear:GPIO17:GPIO27:0.05:2.0")

		So(err, ShouldBeNil)
		So(specs, ShouldHaveLength, 2)
		So(specs[0].FieldOfView, ShouldNotBeNil)
		So(*specs[0].FieldOfView, ShouldEqual, 15.0)
		So(specs[1].Name, ShouldEqual, "rear")
		So(specs[1].FieldOfView, ShouldBeNil)
	})

	Convey("Malformed specs are rejected", t, func() {
		for _, raw := range []string{
			"front:GPIO23:GPIO24:0.05",
			"front:GPIO23:GPIO24:low:4.0",
			"front:GPIO23:GPIO24:0.05:high",
			"front:GPIO23:GPIO24:0.05:4.0:wide",
			"",
		} {
			_, err := ParseSensorSpecs(raw)
			So(err, ShouldNotBeNil)
		}
	})

	Convey("Duplicate sensor names are rejected", t, func() {
		_, err := ParseSensorSpecs("a:1:2:0:1,a:3:4:0:1")
		So(err, ShouldNotBeNil)
	})

	Convey("A line shared between sensors is rejected", t, func() {
		_, err := ParseSensorSpecs("a:GPIO23:GPIO24:0:1,b:GPIO24:GPIO25:0:1")
		So(err, ShouldNotBeNil)
	})
}

func TestLoad(t *testing.T) {
	Convey("Given sensor and broker settings in the environment", t, func() {
		t.Setenv("SONAR_SENSORS", "front:GPIO23:GPIO24:0.05:4.0,rear:GPIO17:GPIO27:0.05:2.0")
		t.Setenv("GPIO_BACKEND", "sim")
		t.Setenv("MQTT_BASE_TOPIC", "sonar/v1/")
		t.Setenv("SAMPLE_INTERVAL", "250ms")

		cfg, err := Load()
		So(err, ShouldBeNil)

		Convey("sensors come through", func() {
			So(cfg.Sonar.Sensors, ShouldHaveLength, 2)
			So(cfg.Sonar.Backend, ShouldEqual, "sim")
		})

		Convey("the base topic loses its trailing slash", func() {
			So(cfg.MQTT.BaseTopic, ShouldEqual, "sonar/v1")
		})

		Convey("the sampling interval parses as a duration", func() {
			So(cfg.Sampler.Interval.Milliseconds(), ShouldEqual, 250)
		})

		Convey("the postgres DSN is assembled", func() {
			So(cfg.Postgres.Dsn, ShouldContainSubstring, "host=localhost")
			So(cfg.Postgres.Dsn, ShouldContainSubstring, "sslmode=disable")
		})
	})

	Convey("An unknown GPIO backend fails Load", t, func() {
		t.Setenv("SONAR_SENSORS", "front:GPIO23:GPIO24:0.05:4.0")
		t.Setenv("GPIO_BACKEND", "ftdi")

		_, err := Load()
		So(err, ShouldNotBeNil)
	})
}
