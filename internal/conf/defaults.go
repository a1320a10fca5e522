// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "clinreview")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/clinreview.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 104857600)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "clinreview.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "clinreview")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "clinreview")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/webserver.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 104857600)

	viper.SetDefault("review.defaultstrategy", "random")
	viper.SetDefault("review.confidencethreshold", 0.7)
	viper.SetDefault("review.lowconfidenceweight", 2.0)
	viper.SetDefault("review.fpthreshold", 0.1)
}
