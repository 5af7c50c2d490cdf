// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaultConfig() {
	viper.SetDefault("main.name", "radiotracker")
	viper.SetDefault("main.debug", false)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "radiotracker.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "radiotracker")
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)

	viper.SetDefault("scraper.timeout", 10*time.Second)
	viper.SetDefault("scraper.useragent", "radiotracker")
	viper.SetDefault("scraper.icy.timeout", 15*time.Second)
	viper.SetDefault("scraper.icy.insecureskipverify", true)
	viper.SetDefault("scraper.pagescrape.urltemplate", "https://www.iheart.com/live/%s/")
	viper.SetDefault("scraper.pagescrape.headless", true)
	viper.SetDefault("scraper.pagescrape.memorylimitmb", 1024)
	viper.SetDefault("scraper.jsonapi.urltemplate", "")
	viper.SetDefault("scraper.jsonapi.ratelimit", 2.0)
	viper.SetDefault("scraper.jsonapi.burst", 4)

	viper.SetDefault("scheduler.workers", 8)
	viper.SetDefault("scheduler.defaultinterval", 60*time.Second)
	viper.SetDefault("scheduler.resyncinterval", 10*time.Minute)
	viper.SetDefault("scheduler.runimmediately", true)

	viper.SetDefault("alerts.workhours.enabled", true)
	viper.SetDefault("alerts.workhours.start", "09:00")
	viper.SetDefault("alerts.workhours.end", "17:00")
	viper.SetDefault("alerts.workhours.timezone", "Local")

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topicprefix", "radiotracker")
	viper.SetDefault("realtime.mqtt.qos", 0)
	viper.SetDefault("realtime.mqtt.retain", false)
	viper.SetDefault("realtime.push.enabled", false)
	viper.SetDefault("realtime.push.timeout", 10*time.Second)
	viper.SetDefault("realtime.sse.enabled", true)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")

	viper.SetDefault("sentry.enabled", false)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/radiotracker.log")
	viper.SetDefault("logging.fileoutput.level", "info")
}
