package ledger

// StakingPlatformABI is the ABI of the staking platform contract.
const StakingPlatformABI = `[
	{"type": "function", "name": "getUserDashboard", "stateMutability": "view",
		"inputs": [{"name": "userId", "type": "bytes5"}],
		"outputs": [
			{"name": "info", "type": "tuple", "components": [{"name": "userId", "type": "bytes5"}, {"name": "wallet", "type": "address"}, {"name": "referrer", "type": "address"}, {"name": "registrationTime", "type": "uint256"}, {"name": "isActive", "type": "bool"}]},
			{"name": "team", "type": "tuple", "components": [{"name": "directReferrals", "type": "bytes5[]"}, {"name": "directCount", "type": "uint256"}, {"name": "qualifiedDirectCount", "type": "uint256"}, {"name": "directBusiness", "type": "uint256"}, {"name": "qualifiedDirectBusiness", "type": "uint256"}, {"name": "teamSize", "type": "uint256"}, {"name": "teamBusiness", "type": "uint256"}, {"name": "unlockedLevels", "type": "uint256"}]},
			{"name": "incomes", "type": "tuple", "components": [{"name": "directIncome", "type": "uint256"}, {"name": "levelIncome", "type": "uint256"}, {"name": "stakingIncome", "type": "uint256"}, {"name": "lifetimeRewardIncome", "type": "uint256"}, {"name": "totalIncome", "type": "uint256"}, {"name": "availableBalance", "type": "uint256"}, {"name": "totalWithdrawn", "type": "uint256"}, {"name": "lastClaimedRewardTier", "type": "uint256"}]},
			{"name": "stakingStats", "type": "tuple", "components": [{"name": "totalStaked", "type": "uint256"}, {"name": "activeStakedAmount", "type": "uint256"}, {"name": "stakeCount", "type": "uint256"}]},
			{"name": "stakes", "type": "tuple[]", "components": [{"name": "id", "type": "uint256"}, {"name": "amount", "type": "uint256"}, {"name": "duration", "type": "uint256"}, {"name": "interestRate", "type": "uint256"}, {"name": "startTime", "type": "uint256"}, {"name": "endTime", "type": "uint256"}, {"name": "isActive", "type": "bool"}, {"name": "isClaimed", "type": "bool"}]},
			{"name": "unlockedLevels", "type": "uint256"},
			{"name": "levelsUnlocked", "type": "bool[20]"},
			{"name": "nextRewardTier", "type": "uint256"},
			{"name": "nextRewardEligible", "type": "bool"},
			{"name": "nextRewardAmount", "type": "uint256"}
		]
	},
	{"type": "function", "name": "getContractStats", "stateMutability": "view",
		"inputs": [],
		"outputs": [
			{"name": "totalUsers", "type": "uint256"},
			{"name": "totalStaked", "type": "uint256"},
			{"name": "totalWithdrawn", "type": "uint256"},
			{"name": "totalDirectIncome", "type": "uint256"},
			{"name": "totalLevelIncome", "type": "uint256"},
			{"name": "totalStakingIncome", "type": "uint256"},
			{"name": "totalLifetimeRewards", "type": "uint256"},
			{"name": "contractBalance", "type": "uint256"}
		]
	},
	{"type": "function", "name": "getPartners", "stateMutability": "view", "inputs": [], "outputs": [{"name": "partners", "type": "address[]"}, {"name": "shares", "type": "uint256[]"}]},
	{"type": "function", "name": "getUserIdByAddress", "stateMutability": "view", "inputs": [{"name": "user", "type": "address"}], "outputs": [{"name": "", "type": "bytes5"}]},
	{"type": "function", "name": "getUserByUserId", "stateMutability": "view", "inputs": [{"name": "userId", "type": "bytes5"}], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "getAllLevelsSummary", "stateMutability": "view", "inputs": [{"name": "userId", "type": "bytes5"}], "outputs": [{"name": "levelCounts", "type": "uint256[20]"}, {"name": "levelBusiness", "type": "uint256[20]"}]},
	{"type": "function", "name": "getLevelUsers", "stateMutability": "view",
		"inputs": [{"name": "userId", "type": "bytes5"}, {"name": "level", "type": "uint8"}],
		"outputs": [{"name": "userIds", "type": "bytes5[]"}, {"name": "stakedAmounts", "type": "uint256[]"}]
	},
	{"type": "function", "name": "getLifetimeRewardProgress", "stateMutability": "view",
		"inputs": [{"name": "userId", "type": "bytes5"}],
		"outputs": [
			{"name": "required", "type": "uint256[6]"},
			{"name": "rewards", "type": "uint256[6]"},
			{"name": "claimed", "type": "bool[6]"},
			{"name": "eligible", "type": "bool[6]"}
		]
	},
	{"type": "function", "name": "getStakePayout", "stateMutability": "view", "inputs": [{"name": "userId", "type": "bytes5"}, {"name": "stakeIndex", "type": "uint256"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "stakingTier1", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "stakingTier2", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "stakingTier3Min", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "stakingMax", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "directIncomePercent", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "directIncomeMinStake", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "levelUnlockDirects", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "levelUnlockMinStake", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "minWithdrawal", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "levelIncomePercent", "stateMutability": "view", "inputs": [{"name": "", "type": "uint256"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "durations", "stateMutability": "view", "inputs": [{"name": "", "type": "uint256"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "interestRates", "stateMutability": "view", "inputs": [{"name": "", "type": "uint256"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "lifetimeRewardTiers", "stateMutability": "view", "inputs": [{"name": "", "type": "uint256"}], "outputs": [{"name": "requiredBusiness", "type": "uint256"}, {"name": "reward", "type": "uint256"}]},
	{"type": "function", "name": "register", "stateMutability": "nonpayable", "inputs": [{"name": "referrerId", "type": "bytes5"}, {"name": "amount", "type": "uint256"}, {"name": "durationIndex", "type": "uint8"}], "outputs": []},
	{"type": "function", "name": "stake", "stateMutability": "nonpayable", "inputs": [{"name": "userId", "type": "bytes5"}, {"name": "amount", "type": "uint256"}, {"name": "durationIndex", "type": "uint8"}], "outputs": []},
	{"type": "function", "name": "claimStake", "stateMutability": "nonpayable", "inputs": [{"name": "userId", "type": "bytes5"}, {"name": "stakeIndex", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "claimAndRestake", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "userId", "type": "bytes5"},
			{"name": "stakeIndex", "type": "uint256"},
			{"name": "amountFromPayout", "type": "uint256"},
			{"name": "amountFromWallet", "type": "uint256"},
			{"name": "newDurationIndex", "type": "uint8"}
		],
		"outputs": []
	},
	{"type": "function", "name": "withdraw", "stateMutability": "nonpayable", "inputs": [{"name": "userId", "type": "bytes5"}, {"name": "amount", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "setDurations", "stateMutability": "nonpayable", "inputs": [{"name": "newDurations", "type": "uint256[4]"}], "outputs": []},
	{"type": "function", "name": "setInterestRates", "stateMutability": "nonpayable", "inputs": [{"name": "newRates", "type": "uint256[4]"}], "outputs": []},
	{"type": "function", "name": "setStakingTiers", "stateMutability": "nonpayable",
		"inputs": [{"name": "tier1", "type": "uint256"}, {"name": "tier2", "type": "uint256"}, {"name": "tier3Min", "type": "uint256"}, {"name": "max", "type": "uint256"}],
		"outputs": []
	},
	{"type": "function", "name": "setDirectIncomeConfig", "stateMutability": "nonpayable", "inputs": [{"name": "percent", "type": "uint256"}, {"name": "minStake", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "setLevelUnlockConfig", "stateMutability": "nonpayable", "inputs": [{"name": "directs", "type": "uint256"}, {"name": "minStake", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "setMinWithdrawal", "stateMutability": "nonpayable", "inputs": [{"name": "amount", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "setPartners", "stateMutability": "nonpayable", "inputs": [{"name": "partners", "type": "address[]"}, {"name": "shares", "type": "uint256[]"}], "outputs": []},
	{"type": "function", "name": "transferFirstUser", "stateMutability": "nonpayable", "inputs": [{"name": "newWallet", "type": "address"}], "outputs": []},
	{"type": "function", "name": "setLevelIncomePercents", "stateMutability": "nonpayable", "inputs": [{"name": "percents", "type": "uint256[20]"}], "outputs": []},
	{"type": "function", "name": "setLifetimeRewardTier", "stateMutability": "nonpayable", "inputs": [{"name": "index", "type": "uint256"}, {"name": "requiredBusiness", "type": "uint256"}, {"name": "reward", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "emergencyWithdraw", "stateMutability": "nonpayable", "inputs": [{"name": "amount", "type": "uint256"}], "outputs": []},
	{"type": "event", "name": "Registered", "anonymous": false,
		"inputs": [
			{"name": "userId", "type": "bytes5", "indexed": true},
			{"name": "wallet", "type": "address", "indexed": true},
			{"name": "referrerId", "type": "bytes5", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{"type": "event", "name": "Staked", "anonymous": false,
		"inputs": [
			{"name": "userId", "type": "bytes5", "indexed": true},
			{"name": "stakeIndex", "type": "uint256", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "durationIndex", "type": "uint8", "indexed": false}
		]
	},
	{"type": "event", "name": "StakeClaimed", "anonymous": false,
		"inputs": [
			{"name": "userId", "type": "bytes5", "indexed": true},
			{"name": "stakeIndex", "type": "uint256", "indexed": false},
			{"name": "payout", "type": "uint256", "indexed": false},
			{"name": "restaked", "type": "uint256", "indexed": false}
		]
	},
	{"type": "event", "name": "Withdrawn", "anonymous": false, "inputs": [{"name": "userId", "type": "bytes5", "indexed": true}, {"name": "amount", "type": "uint256", "indexed": false}]}
]`

// StableTokenABI is the subset of the BEP-20/ERC-20 interface used for the
// stable token that funds stakes.
const StableTokenABI = `[
	{"type": "function", "name": "balanceOf", "stateMutability": "view", "inputs": [{"name": "account", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "allowance", "stateMutability": "view", "inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "decimals", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint8"}]},
	{"type": "function", "name": "approve", "stateMutability": "nonpayable", "inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}], "outputs": [{"name": "", "type": "bool"}]},
	{"type": "event", "name": "Approval", "anonymous": false, "inputs": [{"name": "owner", "type": "address", "indexed": true}, {"name": "spender", "type": "address", "indexed": true}, {"name": "value", "type": "uint256", "indexed": false}]}
]`
