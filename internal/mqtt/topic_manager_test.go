package mqtt

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTopicManager(t *testing.T) {
	Convey("Given a topic manager on a base topic", t, func() {
		tm := NewTopicManager("sonar/v1/")

		Convey("the trailing slash is dropped", func() {
			So(tm.GetBaseTopic(), ShouldEqual, "sonar/v1")
		})

		Convey("reading and command topics build per sensor", func() {
			So(tm.GetReadingTopic("front"), ShouldEqual, "sonar/v1/readings/front")
			So(tm.GetCommandTopic("front"), ShouldEqual, "sonar/v1/command/front")
			So(tm.GetCommandSubTopic(), ShouldEqual, "sonar/v1/command/+")
		})

		Convey("the sensor name extracts from a command topic", func() {
			name, err := tm.ExtractSensorName("sonar/v1/command/front")
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "front")
		})

		Convey("foreign topics are rejected", func() {
			_, err := tm.ExtractSensorName("other/command/front")
			So(err, ShouldNotBeNil)

			_, err = tm.ExtractSensorName("sonar/v1/readings/front")
			So(err, ShouldNotBeNil)
		})

		Convey("topic kinds are told apart", func() {
			So(tm.IsReadingTopic("sonar/v1/readings/front"), ShouldBeTrue)
			So(tm.IsCommandTopic("sonar/v1/readings/front"), ShouldBeFalse)
			So(tm.IsCommandTopic("sonar/v1/command/front"), ShouldBeTrue)
		})
	})
}
