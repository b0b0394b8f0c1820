package workload

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "workload")
