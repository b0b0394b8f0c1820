package mapmodel

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "mapmodel")
