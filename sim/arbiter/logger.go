package arbiter

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "arbiter")
