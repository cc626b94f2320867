package main

import (
	"fmt"
	"log"

	"github.com/kfurrow/jointrl/actorcritic"
	"github.com/kfurrow/jointrl/distribution"
	"github.com/kfurrow/jointrl/environment"
	"github.com/kfurrow/jointrl/model"
	"github.com/kfurrow/jointrl/solver"
	"github.com/kfurrow/jointrl/task"
	"github.com/kfurrow/jointrl/tracker"
	"github.com/kfurrow/jointrl/trajectory"
)

func main() {
	var seed uint64 = 192382
	const (
		epochs          = 5
		collectPerEpoch = 8
		maxEpisodeSteps = 200
	)

	// Create the environment and the trajectory source; collection
	// starts with a uniform random policy.
	env := environment.NewCartpole(seed)
	tsk, err := task.New(env,
		task.RandomDiscrete(env.NumActions(), seed), 0.99,
		maxEpisodeSteps, seed)
	if err != nil {
		log.Fatal(err)
	}

	dist, err := distribution.FromActionSpace(
		distribution.ActionSpace{NumActions: env.NumActions()}, seed)
	if err != nil {
		log.Fatal(err)
	}

	config := actorcritic.DefaultPPOConfig()
	config.BatchSize = 16
	config.TrainStepsPerEpoch = 20
	config.EvalsPerEpoch = 2
	config.EvalSteps = 1
	config.MaxSliceLength = 4

	metrics := tracker.NewMetrics("./metrics.bin")
	trainer, err := actorcritic.NewPPO(
		tsk,
		dist,
		model.NewJointMLP(dist.ParamDims(), []int{16}),
		model.NewJointMLP(dist.ParamDims(), []int{16}),
		solver.NewDefaultAdam(),
		solver.ConstantSchedule(3e-3),
		config,
		metrics,
	)
	if err != nil {
		log.Fatal(err)
	}

	// From here on, collect trajectories with the trained policy.
	tsk.SetPolicy(func(traj trajectory.Trajectory) ([]float64, float64,
		error) {
		action, logProb, err := trainer.Policy(traj)
		if err != nil {
			return nil, 0, err
		}
		return action.Data().([]float64), logProb, nil
	})

	for i := 0; i < epochs; i++ {
		if err := tsk.CollectEpoch(collectPerEpoch); err != nil {
			log.Fatal(err)
		}
		if err := trainer.TrainEpoch(); err != nil {
			log.Fatal(err)
		}
		eval := trainer.Engine().LastEval()
		fmt.Printf("epoch %v: joint_loss=%.4f explained_variance=%.4f\n",
			trainer.Epoch(), eval[actorcritic.MetricJointLoss],
			eval[actorcritic.MetricExplainedVariance])
	}

	if err := metrics.Save(); err != nil {
		log.Fatal(err)
	}
}
